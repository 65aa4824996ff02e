package controllers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/StudioLienzo/CanvasShop/app/repository"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/artwork"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HandleUploadArtwork accepts a customization image for one order item and
// stores it in the temporary upload area. The upload is authorized by the
// scoped token issued at order creation, not by any session.
func HandleUploadArtwork(c *fiber.Ctx) error {
	orderID, err := c.ParamsInt("id")
	if err != nil || orderID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_order_id"})
	}

	secret := env.GetEnv("ARTWORK_TOKEN_SECRET", "")
	claims, err := security.VerifyArtworkToken(c.Get("X-Artwork-Token"), secret)
	if err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid_artwork_token"})
	}
	if claims.OrderID != uint(orderID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "token_order_mismatch"})
	}

	itemID := c.QueryInt("item_id")
	if itemID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_item_id"})
	}
	filename := c.Query("filename")
	if filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_filename"})
	}

	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty_body"})
	}
	if int64(len(body)) > claims.MaxBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "artwork_too_large"})
	}

	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	contentType, err := artwork.ValidateArtworkBySniff(filename, head)
	if err != nil {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{"error": "unsupported_artwork", "message": err.Error()})
	}

	store := artwork.GetStore()
	if store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "artwork_store_disabled"})
	}

	ext := strings.ToLower(filepath.Ext(filename))
	key := artwork.TempKey(fmt.Sprintf("%s%s", uuid.New().String(), ext))

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()
	if err := store.Upload(ctx, key, contentType, body); err != nil {
		log.Errorf("[Artwork] Upload failed for order %d item %d: %v", orderID, itemID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "artwork_upload_failed"})
	}

	repos := repository.GetGlobalRepositories()
	if err := repos.Order.UpdateItemArtworkKey(uint(orderID), uint(itemID), key); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order_item_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "artwork_record_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"artwork_key": key})
}
