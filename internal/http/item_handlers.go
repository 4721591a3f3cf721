package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"secondchance/internal/service"
)

func (h *Handler) listItems(c *gin.Context) {
	items, err := h.items.ListItems(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// createItem accepts either a multipart form (item fields plus an optional
// "file" part) or a JSON object of item fields.
func (h *Handler) createItem(c *gin.Context) {
	var (
		fields map[string]any
		image  *service.ImageUpload
	)

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		form, err := c.MultipartForm()
		if err != nil {
			badRequest(c, "invalid multipart form")
			return
		}
		fields = make(map[string]any, len(form.Value))
		for k, values := range form.Value {
			if len(values) > 0 {
				fields[k] = values[0]
			}
		}

		fh, err := c.FormFile("file")
		switch {
		case err == nil:
			f, err := fh.Open()
			if err != nil {
				badRequest(c, "invalid file upload")
				return
			}
			defer f.Close()
			image = &service.ImageUpload{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Body:        f,
			}
		case errors.Is(err, http.ErrMissingFile):
		default:
			badRequest(c, "invalid file upload")
			return
		}
	} else {
		var err error
		if fields, err = decodeFields(c.Request.Body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	item, err := h.items.CreateItem(c.Request.Context(), fields, image)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) getItem(c *gin.Context) {
	item, err := h.items.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// updateItem treats an empty body as an update with no fields. An unknown id
// is reported as 404 even when the body is malformed.
func (h *Handler) updateItem(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	fields, err := decodeFields(c.Request.Body)
	if errors.Is(err, io.EOF) {
		fields, err = nil, nil
	}
	if err != nil {
		if _, getErr := h.items.GetItem(ctx, id); getErr != nil {
			h.writeError(c, getErr)
			return
		}
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.items.UpdateItem(ctx, id, fields)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": result})
}

func (h *Handler) deleteItem(c *gin.Context) {
	if err := h.items.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": "success"})
}

// decodeFields reads a JSON object keeping numbers as json.Number. An empty
// body yields io.EOF.
func decodeFields(r io.Reader) (map[string]any, error) {
	var fields map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
