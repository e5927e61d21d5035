package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a staff password at the given bcrypt cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword compares a stored staff hash with a login attempt.  rehash
// reports a match whose hash was made below minCost and should be replaced.
func CheckPassword(hash, plain string, minCost int) (ok, rehash bool) {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) != nil {
		return false, false
	}
	cost, err := bcrypt.Cost([]byte(hash))
	return true, err == nil && cost < minCost
}
