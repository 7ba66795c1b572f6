//go:build cgo

package postgres

// CGOEnabled reports whether the tests can use the go-sqlite3 backed gorm
// driver, which requires cgo.
const CGOEnabled = true
