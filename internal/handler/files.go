package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gigexecs/gigexecs-api/internal/service"
)

type FileHandler struct {
	Files *service.FileService
}

func NewFileHandler(files *service.FileService) *FileHandler {
	if files == nil {
		panic("nil service passed to NewFileHandler")
	}
	return &FileHandler{Files: files}
}

// SignedURL handles POST /generate-signed-url.
func (h *FileHandler) SignedURL(c echo.Context) error {
	var in service.SignedURLInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	res, err := h.Files.SignURL(caller(c).ID, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Serve handles GET /files/* for links issued by SignedURL.
func (h *FileHandler) Serve(c echo.Context) error {
	key := c.Param("*")
	b, err := h.Files.Open(c.Request().Context(), key, c.QueryParam("expires"), c.QueryParam("sig"))
	if err != nil {
		return fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, no-store")
	return c.Blob(http.StatusOK, http.DetectContentType(b), b)
}
