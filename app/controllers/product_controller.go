package controllers

import (
	"errors"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/StudioLienzo/CanvasShop/app/repository"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/metrics/counter"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var validate = validator.New()

// HandleListProducts returns the active product catalog.
func HandleListProducts(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)

	repo := repository.GetGlobalFactory().GetProductRepository()
	products, err := repo.ListActive(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "product_list_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"products": products})
}

// HandleGetProduct returns a single product.
func HandleGetProduct(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_product_id"})
	}

	repo := repository.GetGlobalFactory().GetProductRepository()
	product, err := repo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "product_lookup_failed"})
	}

	// View counts are buffered in Redis and flushed in batches.
	if err := counter.AddProductView(product.ID); err != nil {
		log.Warnf("[Product] Failed to count view for product %d: %v", product.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(product)
}

// HandleCreateProduct creates a product (admin).
func HandleCreateProduct(c *fiber.Ctx) error {
	var product models.Product
	if err := c.BodyParser(&product); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if err := validate.Struct(&product); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	repo := repository.GetGlobalFactory().GetProductRepository()
	if err := repo.Create(&product); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "product_create_failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// HandleUpdateProduct updates product fields (admin).
func HandleUpdateProduct(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_product_id"})
	}

	repo := repository.GetGlobalFactory().GetProductRepository()
	product, err := repo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "product_lookup_failed"})
	}

	if err := c.BodyParser(product); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if err := validate.Struct(product); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repo.Update(product); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "product_update_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(product)
}
