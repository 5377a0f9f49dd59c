package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("attendance")
		// records are only written by the check-in endpoint
		collection.ListRule = types.Pointer("user_id = @request.auth.id || @request.auth.role = 'stage_manager' || @request.auth.role = 'director' || @request.auth.role = 'admin'")
		collection.ViewRule = collection.ListRule

		collection.Fields.Add(
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "user_name"},
			&core.TextField{Name: "user_role"},
			&core.TextField{Name: "session_id", Required: true},
			&core.TextField{Name: "production_id"},
			&core.DateField{Name: "check_in_time", Required: true},
			&core.BoolField{Name: "is_late"},
			&core.SelectField{Name: "status", MaxSelect: 1, Values: []string{"present", "absent"}},
			&core.TextField{Name: "notes"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		collection.AddIndex("idx_attendance_user_session", true, "user_id, session_id", "")
		collection.AddIndex("idx_attendance_session", false, "session_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("attendance")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
