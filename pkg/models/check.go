package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ProxyCheck is one protocol probe against a proxy product endpoint.
type ProxyCheck struct {
	bun.BaseModel `bun:"table:proxy_checks,alias:pc"`

	ID         int64  `bun:",pk,autoincrement"`
	Product    string `bun:",notnull"`
	Protocol   string `bun:",notnull"`
	Host       string `bun:",notnull"`
	Port       int    `bun:",notnull"`
	Country    string
	SessionID  string
	Target     string `bun:",notnull"`
	Success    bool   `bun:",notnull"`
	StatusCode int
	ErrorMsg   string
	DurationMs int64     `bun:",notnull"`
	CreatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
