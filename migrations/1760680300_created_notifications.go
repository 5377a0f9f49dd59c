package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("notifications")
		collection.ListRule = types.Pointer("user_id = @request.auth.id")
		collection.ViewRule = types.Pointer("user_id = @request.auth.id")
		collection.UpdateRule = types.Pointer("user_id = @request.auth.id")

		collection.Fields.Add(
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "title"},
			&core.TextField{Name: "message"},
			&core.TextField{Name: "type"},
			&core.BoolField{Name: "read"},
			&core.JSONField{Name: "data"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		collection.AddIndex("idx_notifications_user", false, "user_id, read", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("notifications")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
