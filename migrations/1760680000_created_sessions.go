package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("sessions")
		collection.ListRule = types.Pointer("@request.auth.id != ''")
		collection.ViewRule = types.Pointer("@request.auth.id != ''")

		collection.Fields.Add(
			&core.TextField{Name: "production_id", Required: true},
			&core.TextField{Name: "production_name"},
			&core.DateField{Name: "start_time", Required: true},
			&core.DateField{Name: "end_time"},
			&core.TextField{Name: "location"},
			&core.TextField{Name: "scenes"},
			&core.NumberField{Name: "venue_latitude", Min: types.Pointer(-90.0), Max: types.Pointer(90.0)},
			&core.NumberField{Name: "venue_longitude", Min: types.Pointer(-180.0), Max: types.Pointer(180.0)},
			&core.NumberField{Name: "venue_radius", Min: types.Pointer(0.0)},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		collection.AddIndex("idx_sessions_start_time", false, "start_time", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("sessions")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
