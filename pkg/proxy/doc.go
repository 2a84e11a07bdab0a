/*
Package proxy builds Thordata proxy addresses and credentials.

A Config carries the account credentials, the product endpoint and the
geo/session targeting for one logical connection. Targeting is encoded into
the gateway username as ordered hyphen-joined segments:

	td-customer-<user>-country-jp-city-tokyo-sessid-abc123-sesstime-10

Three address forms are exposed so the config works with any transport:

	BuildProxyURL       full URL with url-escaped embedded credentials
	BuildProxyEndpoint  scheme://host:port, credentials sent separately
	BuildBasicAuth      "username:password" for Proxy-Authorization

The socks5 protocol is rewritten to socks5h in URLs so DNS resolution happens
at the proxy rather than locally.

StaticISP is the simpler sibling for dedicated static ISP proxies (verbatim
username, no targeting). NewStickySession pins the exit IP for a bounded
duration by generating a session id and encoding the duration.

All values are validated eagerly at construction and immutable afterwards;
building addresses is pure string work with no I/O.
*/
package proxy
