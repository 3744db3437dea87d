package http

import (
	natsadapter "github.com/mzabaleta/veloloop/internal/adapters/nats"
	"github.com/mzabaleta/veloloop/internal/adapters/postgres"
	"github.com/mzabaleta/veloloop/internal/adapters/valkey"
	"github.com/mzabaleta/veloloop/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Sessions *usecases.SessionService
	Stitcher *usecases.StitchService
	Geocode  *usecases.GeocodeService
	Archive  *usecases.ArchiveService
	DB       *postgres.DB
	Cache    *valkey.Cache
	NATS     *natsadapter.Publisher

	// DefaultProfile is the ride profile used when a request names none.
	DefaultProfile string
	// DefaultStretch is the planner stretch factor used when unset.
	DefaultStretch float64
}
