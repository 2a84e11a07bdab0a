/*
Package models defines the persisted data structures of the toolkit.

ProxyCheck records the outcome of probing one proxy product endpoint over one
protocol: which endpoint and targeting was used, whether the probe reached the
target through the proxy, the HTTP status observed, and how long the whole
exchange took. Rows are written by pkg/checker and stored via pkg/database.
*/
package models
