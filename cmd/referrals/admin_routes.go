package main

import (
	"github.com/gofiber/fiber/v2"
	crud "github.com/goliatone/go-crud"
	"github.com/goliatone/go-referrals/activity"
	"github.com/goliatone/go-referrals/groups"
	"github.com/goliatone/go-referrals/referral"
	"github.com/goliatone/go-router"
)

func readOnlyRoutes() map[crud.CrudOperation]crud.RouteOptions {
	return map[crud.CrudOperation]crud.RouteOptions{
		crud.OpCreate:      {Enabled: crud.BoolPtr(false)},
		crud.OpUpdate:      {Enabled: crud.BoolPtr(false)},
		crud.OpDelete:      {Enabled: crud.BoolPtr(false)},
		crud.OpCreateBatch: {Enabled: crud.BoolPtr(false)},
		crud.OpUpdateBatch: {Enabled: crud.BoolPtr(false)},
		crud.OpDeleteBatch: {Enabled: crud.BoolPtr(false)},
	}
}

// RegisterAdminRoutes mounts go-crud controllers for groups, referrals and
// the activity log. Referral and activity rows are append-only so only the
// read operations are exposed. Groups can be created and edited to manage
// church backfill.
func RegisterAdminRoutes(app *App, r router.Router[*fiber.App]) {
	adapter := crud.NewGoRouterAdapter(r)

	if app.groups != nil {
		groupController := crud.NewController[*groups.Record](app.groups,
			crud.WithRouteConfig[*groups.Record](crud.RouteConfig{
				Operations: map[crud.CrudOperation]crud.RouteOptions{
					crud.OpDelete:      {Enabled: crud.BoolPtr(false)},
					crud.OpCreateBatch: {Enabled: crud.BoolPtr(false)},
					crud.OpUpdateBatch: {Enabled: crud.BoolPtr(false)},
					crud.OpDeleteBatch: {Enabled: crud.BoolPtr(false)},
				},
			}),
		)
		groupController.RegisterRoutes(adapter)
	}

	if app.referrals != nil {
		referralController := crud.NewController[*referral.Record](app.referrals,
			crud.WithRouteConfig[*referral.Record](crud.RouteConfig{
				Operations: readOnlyRoutes(),
			}),
		)
		referralController.RegisterRoutes(adapter)
	}

	if app.activity != nil {
		activityController := crud.NewController[*activity.LogEntry](app.activity.Entries(),
			crud.WithRouteConfig[*activity.LogEntry](crud.RouteConfig{
				Operations: readOnlyRoutes(),
			}),
		)
		activityController.RegisterRoutes(adapter)
	}
}
