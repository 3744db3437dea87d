package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mzabaleta/veloloop/internal/core/domain"
)

// GenerateLoopRequest is the request body for loop generation. The start
// may be given as a coordinate or as a place name; names are resolved
// through the geocoder before the engine runs.
type GenerateLoopRequest struct {
	Start            *domain.Point  `json:"start,omitempty"`
	StartAddress     string         `json:"start_address,omitempty"`
	TargetDistanceKm float64        `json:"target_distance_km"`
	Bearings         []float64      `json:"bearings"`
	StretchFactor    float64        `json:"stretch_factor,omitempty"`
	Profile          string         `json:"profile,omitempty"`
	WaypointNames    []string       `json:"waypoint_names,omitempty"`
	NamedWaypoints   []domain.Point `json:"named_waypoints,omitempty"`
}

// GenerateLoopHandler synthesizes a loop and opens an editing session.
func GenerateLoopHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req GenerateLoopRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body: "+err.Error())
		}
		if req.TargetDistanceKm <= 0 {
			return errBadRequest(c, "target_distance_km must be positive")
		}
		if len(req.Bearings) == 0 && len(req.NamedWaypoints) == 0 && len(req.WaypointNames) == 0 {
			return errBadRequest(c, "at least one bearing or waypoint is required")
		}
		for _, b := range req.Bearings {
			if b < 0 || b >= 360 {
				return errBadRequest(c, "bearings must be in [0, 360)")
			}
		}

		ctx := c.UserContext()

		start := domain.Point{}
		switch {
		case req.Start != nil:
			start = *req.Start
		case req.StartAddress != "":
			p, err := deps.Geocode.Geocode(ctx, req.StartAddress)
			if err != nil {
				return mapRoutingError(c, err)
			}
			start = p
		default:
			return errBadRequest(c, "either start or start_address is required")
		}

		named := req.NamedWaypoints
		for _, name := range req.WaypointNames {
			p, err := deps.Geocode.Geocode(ctx, name)
			if err != nil {
				return mapRoutingError(c, err)
			}
			named = append(named, p)
		}

		profile := req.Profile
		if profile == "" {
			profile = deps.DefaultProfile
		}
		stretch := req.StretchFactor
		if stretch <= 0 {
			stretch = deps.DefaultStretch
		}

		state, err := deps.Sessions.CreateLoop(ctx, domain.LoopRequest{
			Start:            start,
			TargetDistanceKm: req.TargetDistanceKm,
			StretchFactor:    stretch,
			Profile:          profile,
			Bearings:         req.Bearings,
			NamedWaypoints:   named,
		})
		if err != nil {
			return mapRoutingError(c, err)
		}
		LoggerFromCtx(ctx).Info("loop generated",
			"session_id", state.SessionID,
			"distance_km", state.Route.DistanceKm,
			"attempts", state.Attempts,
			"accepted", state.Accepted)
		return c.Status(fiber.StatusCreated).JSON(state)
	}
}

// GetSessionHandler returns a session's current route.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapRoutingError(c, err)
		}
		return c.JSON(state)
	}
}

// CloseSessionHandler discards a session.
func CloseSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Sessions.Close(c.Params("id"))
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// MoveWaypointHandler relocates a via waypoint and returns the re-stitched
// route.
func MoveWaypointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var to domain.Point
		if err := c.BodyParser(&to); err != nil {
			return errBadRequest(c, "invalid JSON body: "+err.Error())
		}
		route, err := deps.Sessions.MoveWaypoint(c.UserContext(), c.Params("id"), c.Params("wid"), to)
		if err != nil {
			return mapRoutingError(c, err)
		}
		return c.JSON(route)
	}
}

// AddWaypointRequest inserts a waypoint splitting the given leg.
type AddWaypointRequest struct {
	AfterLeg int     `json:"after_leg"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// AddWaypointHandler inserts a new via waypoint.
func AddWaypointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req AddWaypointRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body: "+err.Error())
		}
		route, err := deps.Sessions.AddWaypoint(c.UserContext(), c.Params("id"), req.AfterLeg,
			domain.Point{Lat: req.Lat, Lng: req.Lng})
		if err != nil {
			return mapRoutingError(c, err)
		}
		return c.JSON(route)
	}
}

// RemoveWaypointHandler deletes a via waypoint.
func RemoveWaypointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		route, err := deps.Sessions.RemoveWaypoint(c.UserContext(), c.Params("id"), c.Params("wid"))
		if err != nil {
			return mapRoutingError(c, err)
		}
		return c.JSON(route)
	}
}

// RouteLegRequest asks for a single leg between two points.
type RouteLegRequest struct {
	From    domain.Point `json:"from"`
	To      domain.Point `json:"to"`
	Profile string       `json:"profile,omitempty"`
}

// RouteLegHandler is the thin two-point pass-through used by map clients
// to preview a leg. No session state is touched.
func RouteLegHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RouteLegRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body: "+err.Error())
		}
		profile := req.Profile
		if profile == "" {
			profile = deps.DefaultProfile
		}
		seg, err := deps.Stitcher.RouteSingleLeg(c.UserContext(), req.From, req.To, profile)
		if err != nil {
			return mapRoutingError(c, err)
		}
		return c.JSON(seg)
	}
}

// GeocodeHandler resolves a place name to a coordinate.
func GeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := c.Query("q")
		if q == "" {
			return errBadRequest(c, "q is required")
		}
		p, err := deps.Geocode.Geocode(c.UserContext(), q)
		if err != nil {
			return mapRoutingError(c, err)
		}
		c.Set("Cache-Control", "public, max-age=86400")
		return c.JSON(p)
	}
}

// SaveRouteRequest names a session's route for archiving.
type SaveRouteRequest struct {
	Name string `json:"name"`
}

// SaveRouteHandler archives the session's current route.
func SaveRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Archive == nil {
			return errInternal(c, "route archive not available")
		}
		var req SaveRouteRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body: "+err.Error())
		}
		state, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapRoutingError(c, err)
		}
		saved, err := deps.Archive.Save(c.UserContext(), req.Name, state.Route)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(saved)
	}
}

// ListRoutesHandler returns archived routes, paginated.
func ListRoutesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Archive == nil {
			return errInternal(c, "route archive not available")
		}
		pg := ParsePagination(c)
		routes, total, err := deps.Archive.List(c.UserContext(), pg.Offset, pg.Limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg.Total = total
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: routes, Pagination: pg})
	}
}

// GetSavedRouteHandler returns one archived route.
func GetSavedRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Archive == nil {
			return errInternal(c, "route archive not available")
		}
		saved, err := deps.Archive.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			if errors.Is(err, domain.ErrRouteNotFound) {
				return errNotFound(c, "saved route not found")
			}
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=600")
		return c.JSON(saved)
	}
}

// DeleteSavedRouteHandler removes an archived route.
func DeleteSavedRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Archive == nil {
			return errInternal(c, "route archive not available")
		}
		if err := deps.Archive.Delete(c.UserContext(), c.Params("id")); err != nil {
			if errors.Is(err, domain.ErrRouteNotFound) {
				return errNotFound(c, "saved route not found")
			}
			return errInternal(c, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// mapRoutingError translates the engine's error taxonomy into the API's
// error envelope. Superseded edits are not failures: the client that
// triggered the newer operation already has the fresher route.
func mapRoutingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrStaleEdit):
		return c.SendStatus(fiber.StatusNoContent)
	case errors.Is(err, domain.ErrSessionNotFound):
		return errNotFound(c, "session not found")
	case errors.Is(err, domain.ErrStartUnroutable):
		return errUnprocessable(c, "unroutable_start", "the start point cannot be reached by road; try a nearby location")
	case errors.Is(err, domain.ErrNearCoastline):
		return errUnprocessable(c, "near_coastline", "the loop area is too close to water or unmapped terrain")
	case errors.Is(err, domain.ErrSparseRoads):
		return errUnprocessable(c, "sparse_roads", "the road network here is too sparse for a loop of that length")
	case errors.Is(err, domain.ErrWaypointFloor):
		return errUnprocessable(c, "waypoint_floor", err.Error())
	case errors.Is(err, domain.ErrPlaceNotFound):
		return errNotFound(c, err.Error())
	default:
		return errBadGateway(c, err.Error())
	}
}
