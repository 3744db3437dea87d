package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/mzabaleta/veloloop/internal/core/domain"
)

func savedRouteMap(r domain.SavedRoute) map[string]interface{} {
	return map[string]interface{}{
		"id":               r.ID,
		"name":             r.Name,
		"profile":          r.Route.Profile,
		"distance_km":      r.Route.DistanceKm,
		"elevation_gain_m": r.Route.ElevationGainM,
		"waypoint_count":   len(r.Route.Waypoints),
		"created_at":       r.CreatedAt.Format(time.RFC3339),
	}
}

// buildSchema creates the GraphQL schema wired to our services. It covers
// the read surfaces only: the archive, geocoding, and session summaries.
// Edits stay on REST and WebSocket where cancellation semantics live.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	savedRouteType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SavedRoute",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"name":             &graphql.Field{Type: graphql.String},
			"profile":          &graphql.Field{Type: graphql.String},
			"distance_km":      &graphql.Field{Type: graphql.Float},
			"elevation_gain_m": &graphql.Field{Type: graphql.Float},
			"waypoint_count":   &graphql.Field{Type: graphql.Int},
			"created_at":       &graphql.Field{Type: graphql.String},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"session_id":       &graphql.Field{Type: graphql.String},
			"distance_km":      &graphql.Field{Type: graphql.Float},
			"elevation_gain_m": &graphql.Field{Type: graphql.Float},
			"waypoint_count":   &graphql.Field{Type: graphql.Int},
			"accepted":         &graphql.Field{Type: graphql.Boolean},
			"attempts":         &graphql.Field{Type: graphql.Int},
			"center":           &graphql.Field{Type: geoPointType},
			"radius_km":        &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"savedRoutes": &graphql.Field{
				Type:        graphql.NewList(savedRouteType),
				Description: "List archived routes",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Archive == nil {
						return nil, nil
					}
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					routes, _, err := deps.Archive.List(p.Context, offset, limit)
					if err != nil {
						return nil, err
					}
					result := make([]map[string]interface{}, 0, len(routes))
					for _, r := range routes {
						result = append(result, savedRouteMap(r))
					}
					return result, nil
				},
			},
			"savedRoute": &graphql.Field{
				Type:        savedRouteType,
				Description: "Get an archived route by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Archive == nil {
						return nil, nil
					}
					saved, err := deps.Archive.GetByID(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return savedRouteMap(*saved), nil
				},
			},
			"session": &graphql.Field{
				Type:        sessionType,
				Description: "Summary of a live editing session",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					state, err := deps.Sessions.Get(p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{
						"session_id":       state.SessionID,
						"distance_km":      state.Route.DistanceKm,
						"elevation_gain_m": state.Route.ElevationGainM,
						"waypoint_count":   len(state.Route.Waypoints),
						"accepted":         state.Accepted,
						"attempts":         state.Attempts,
						"center":           map[string]interface{}{"lat": state.Center.Lat, "lng": state.Center.Lng},
						"radius_km":        state.RadiusKm,
					}, nil
				},
			},
			"geocode": &graphql.Field{
				Type:        geoPointType,
				Description: "Resolve a place name to a coordinate",
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					point, err := deps.Geocode.Geocode(p.Context, p.Args["name"].(string))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"lat": point.Lat, "lng": point.Lng}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
