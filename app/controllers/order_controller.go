package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/StudioLienzo/CanvasShop/app/repository"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/reference"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

type createOrderItem struct {
	ProductID  uint   `json:"product_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
	ArtworkKey string `json:"artwork_key"`
}

type createOrderRequest struct {
	CustomerName  string            `json:"customer_name" validate:"required"`
	CustomerEmail string            `json:"customer_email" validate:"required,email"`
	CustomerPhone string            `json:"customer_phone"`
	Items         []createOrderItem `json:"items" validate:"required,min=1,dive"`
}

// HandleCreateOrder creates a pending order. The order id doubles as the
// external reference handed to the payment processor at checkout, which is
// how webhooks resolve back to the order.
func HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	repos := repository.GetGlobalRepositories()

	publicToken, err := reference.NewOrderReference()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_create_failed"})
	}

	order := models.Order{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		PublicToken:   publicToken,
		Status:        models.OrderStatusPending,
	}
	var total float64
	customizable := false
	for _, item := range req.Items {
		product, err := repos.Product.GetByID(item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_product", "product_id": item.ProductID})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "product_lookup_failed"})
		}
		if !product.IsActive {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "product_inactive", "product_id": product.ID})
		}
		if product.Stock < item.Quantity {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient_stock", "product_id": product.ID})
		}
		if product.Customizable {
			customizable = true
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:  product.ID,
			Quantity:   item.Quantity,
			UnitPrice:  product.Price,
			ArtworkKey: item.ArtworkKey,
		})
		total += product.Price * float64(item.Quantity)
	}
	order.TotalAmount = total

	if err := repos.Order.Create(&order); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_create_failed"})
	}

	resp := fiber.Map{
		"order":              order,
		"external_reference": strconv.FormatUint(uint64(order.ID), 10),
	}
	if customizable {
		if token, err := issueArtworkToken(order.ID); err == nil {
			resp["artwork_upload_token"] = token
		} else {
			log.Warnf("[Order] Could not issue artwork token for order %d: %v", order.ID, err)
		}
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

const artworkTokenTTL = time.Hour

func issueArtworkToken(orderID uint) (string, error) {
	secret := env.GetEnv("ARTWORK_TOKEN_SECRET", "")
	maxBytes, err := strconv.ParseInt(env.GetEnv("ARTWORK_MAX_BYTES", "10485760"), 10, 64)
	if err != nil || maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return security.GenerateArtworkToken(orderID, maxBytes, artworkTokenTTL, secret)
}

// HandleGetOrderByReference resolves an order through its public reference
// code. This is the customer-facing lookup; numeric ids stay internal.
func HandleGetOrderByReference(c *fiber.Ctx) error {
	token := c.Params("token")
	if len(token) != reference.OrderReferenceLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_reference"})
	}

	repos := repository.GetGlobalRepositories()
	order, err := repos.Order.GetByPublicToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_lookup_failed"})
	}

	resp := fiber.Map{"order": order}
	if payment, err := repos.Payment.GetByOrderID(order.ID); err == nil {
		resp["payment"] = payment
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleGetOrder returns an order with its payment state.
func HandleGetOrder(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_order_id"})
	}

	repos := repository.GetGlobalRepositories()
	order, err := repos.Order.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_lookup_failed"})
	}

	resp := fiber.Map{"order": order}
	if payment, err := repos.Payment.GetByOrderID(order.ID); err == nil {
		resp["payment"] = payment
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
