// Package storage persists generated critical CSS artifacts per
// shop+template, along with a capped history of failed generation attempts.
//
// The Store interface has SQLite and MySQL implementations; SQLite is the
// default for single-node deployments.
//
// Usage:
//
//	store, err := storage.NewSQLiteStore("./critical-css.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.SaveDocument(&storage.Document{...})
//	doc, err := store.GetDocument("shop-1", "product")
package storage
