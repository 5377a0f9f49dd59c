package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		cast := core.NewBaseCollection("production_cast")
		cast.ListRule = types.Pointer("@request.auth.id != ''")
		cast.Fields.Add(
			&core.TextField{Name: "production_id", Required: true},
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "display_name"},
			&core.TextField{Name: "character"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		cast.AddIndex("idx_cast_production_user", true, "production_id, user_id", "")
		if err := app.Save(cast); err != nil {
			return err
		}

		staff := core.NewBaseCollection("production_staff")
		staff.ListRule = types.Pointer("@request.auth.id != ''")
		staff.Fields.Add(
			&core.TextField{Name: "production_id", Required: true},
			&core.TextField{Name: "user_id", Required: true},
			&core.SelectField{Name: "role", Required: true, MaxSelect: 1, Values: []string{"stage_manager", "director", "admin"}},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		staff.AddIndex("idx_staff_production_role", false, "production_id, role", "")
		return app.Save(staff)
	}, func(app core.App) error {
		for _, name := range []string{"production_staff", "production_cast"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
