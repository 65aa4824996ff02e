package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/cache"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/database"
)

const (
	CacheKeyOrdersTotal    = "statistics:orders:total"
	CacheKeyOrdersDaily    = "statistics:orders:daily:%s" // format with date YYYY-MM-DD
	CacheKeyRevenueTotal   = "statistics:revenue:total"
	CacheKeyWebhookBacklog = "statistics:webhooks:backlog"
	CacheExpiration        = 30 * time.Minute
)

// StatisticsData holds the aggregates shown on the admin dashboard.
type StatisticsData struct {
	TodayOrders    int     `json:"today_orders"`
	TotalOrders    int     `json:"total_orders"`
	TotalRevenue   float64 `json:"total_revenue"`
	WebhookBacklog int     `json:"webhook_backlog"`
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached aggregates are stale.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the statistics cache when it is stale.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Failed to update statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// UpdateStatisticsCache recomputes all aggregates and writes them to Redis.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalOrders int64
	if err := db.Model(&models.Order{}).Count(&totalOrders).Error; err != nil {
		return err
	}

	today := time.Now().Format("2006-01-02")
	var todayOrders int64
	if err := db.Model(&models.Order{}).
		Where("created_at >= ?", today).
		Count(&todayOrders).Error; err != nil {
		return err
	}

	var totalRevenue float64
	if err := db.Model(&models.Order{}).
		Where("status = ?", models.OrderStatusPaid).
		Select("COALESCE(SUM(total_amount), 0)").
		Scan(&totalRevenue).Error; err != nil {
		return err
	}

	var backlog int64
	if err := db.Model(&models.WebhookEvent{}).
		Where("processed = ?", false).
		Count(&backlog).Error; err != nil {
		return err
	}

	if err := cache.Set(CacheKeyOrdersTotal, strconv.FormatInt(totalOrders, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(fmt.Sprintf(CacheKeyOrdersDaily, today), strconv.FormatInt(todayOrders, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyRevenueTotal, strconv.FormatFloat(totalRevenue, 'f', 2, 64), CacheExpiration); err != nil {
		return err
	}
	return cache.Set(CacheKeyWebhookBacklog, strconv.FormatInt(backlog, 10), CacheExpiration)
}

// GetStatistics returns the cached aggregates, recomputing on cache miss.
func GetStatistics() StatisticsData {
	UpdateCacheIfNeeded()

	data := StatisticsData{}
	if v, err := cache.Get(CacheKeyOrdersTotal); err == nil {
		data.TotalOrders, _ = strconv.Atoi(v)
	}
	today := time.Now().Format("2006-01-02")
	if v, err := cache.Get(fmt.Sprintf(CacheKeyOrdersDaily, today)); err == nil {
		data.TodayOrders, _ = strconv.Atoi(v)
	}
	if v, err := cache.Get(CacheKeyRevenueTotal); err == nil {
		data.TotalRevenue, _ = strconv.ParseFloat(v, 64)
	}
	if v, err := cache.Get(CacheKeyWebhookBacklog); err == nil {
		data.WebhookBacklog, _ = strconv.Atoi(v)
	}
	return data
}
