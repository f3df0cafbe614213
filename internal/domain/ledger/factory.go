package ledger

import (
	"fmt"

	"gorm.io/gorm"
)

// Driver identifiers supported by the ledger domain.
const (
	DriverMemory = "memory"
	DriverGorm   = "gorm"
	DriverRedis  = "redis"
)

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	DB *gorm.DB
}

// New creates a ledger store based on the provided configuration.
func New(cfg Config, deps Dependencies) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverGorm
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverGorm:
		if deps.DB == nil {
			return nil, fmt.Errorf("gorm driver requires database handle")
		}
		return NewGorm(deps.DB), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported ledger store driver: %s", driver)
	}
}
