package proxy

// Product identifies a Thordata proxy product line.
type Product string

const (
	Residential Product = "residential"
	Mobile      Product = "mobile"
	Datacenter  Product = "datacenter"
	ISP         Product = "isp"
)

// DefaultPort returns the gateway port for the product.
func (p Product) DefaultPort() int {
	switch p {
	case Mobile:
		return 5555
	case Datacenter:
		return 7777
	case ISP:
		return 6666
	default:
		return 9999
	}
}

// DefaultHost returns the gateway host for the product.
func (p Product) DefaultHost() string {
	switch p {
	case Mobile:
		return "m.pr.thordata.net"
	case Datacenter:
		return "dc.pr.thordata.net"
	case ISP:
		return "isp.pr.thordata.net"
	default:
		return "pr.thordata.net"
	}
}

func (p Product) valid() bool {
	switch p {
	case Residential, Mobile, Datacenter, ISP:
		return true
	}
	return false
}
