package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultSocketPort is the raw SCPI port of R&S instruments
const DefaultSocketPort = 5025

// Resource kinds
const (
	ResourceTCP    = "tcp"
	ResourceSerial = "serial"
	ResourceMock   = "mock"
)

// Resource is a parsed VISA-style resource string
type Resource struct {
	Kind    string
	Address string // host:port for tcp, device path for serial, model for mock
	Options string // option list of a mock resource
	Raw     string
}

// Options configures Open
type Options struct {
	Timeout  time.Duration
	BaudRate int
}

// ParseResource understands
//
//	TCPIP[n]::<host>::<port>::SOCKET
//	TCPIP[n]::<host>[::inst0]::INSTR   (mapped to the raw socket port)
//	ASRL<n>::INSTR or ASRL<device>::INSTR
//	MOCK::<model>[::<options>]
func ParseResource(resource string) (Resource, error) {
	raw := strings.TrimSpace(resource)
	parts := strings.Split(raw, "::")
	if len(parts) < 2 {
		return Resource{}, fmt.Errorf("invalid resource %q", resource)
	}

	head := strings.ToUpper(parts[0])
	tail := strings.ToUpper(parts[len(parts)-1])

	switch {
	case strings.HasPrefix(head, "TCPIP"):
		if len(parts) < 3 {
			return Resource{}, fmt.Errorf("invalid TCPIP resource %q", resource)
		}
		host := parts[1]
		switch tail {
		case "SOCKET":
			if len(parts) != 4 {
				return Resource{}, fmt.Errorf("invalid socket resource %q", resource)
			}
			port, err := strconv.Atoi(parts[2])
			if err != nil || port <= 0 || port > 65535 {
				return Resource{}, fmt.Errorf("invalid port in %q", resource)
			}
			return Resource{Kind: ResourceTCP, Address: net.JoinHostPort(host, strconv.Itoa(port)), Raw: raw}, nil
		case "INSTR":
			if len(parts) == 4 && strings.HasPrefix(strings.ToLower(parts[2]), "hislip") {
				return Resource{}, fmt.Errorf("HiSLIP resource %q is not supported", resource)
			}
			return Resource{Kind: ResourceTCP, Address: net.JoinHostPort(host, strconv.Itoa(DefaultSocketPort)), Raw: raw}, nil
		}
		return Resource{}, fmt.Errorf("unsupported TCPIP resource class %q", parts[len(parts)-1])

	case strings.HasPrefix(head, "ASRL"):
		if tail != "INSTR" {
			return Resource{}, fmt.Errorf("invalid serial resource %q", resource)
		}
		device := parts[0][len("ASRL"):]
		if device == "" {
			return Resource{}, fmt.Errorf("serial resource %q names no port", resource)
		}
		if n, err := strconv.Atoi(device); err == nil {
			if n < 1 {
				return Resource{}, fmt.Errorf("invalid serial port number in %q", resource)
			}
			device = fmt.Sprintf("/dev/ttyS%d", n-1)
		}
		return Resource{Kind: ResourceSerial, Address: device, Raw: raw}, nil

	case head == "MOCK":
		r := Resource{Kind: ResourceMock, Address: parts[1], Raw: raw}
		if len(parts) > 2 {
			r.Options = parts[2]
		}
		return r, nil
	}

	return Resource{}, fmt.Errorf("unsupported resource %q", resource)
}

// Open connects to a resource
func Open(resource string, opts Options) (Transport, error) {
	r, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}

	switch r.Kind {
	case ResourceTCP:
		return DialTCP(r.Address, opts.Timeout)
	case ResourceSerial:
		return OpenSerial(r.Address, opts.BaudRate, opts.Timeout)
	default:
		var options []string
		if r.Options != "" {
			options = strings.Split(r.Options, ",")
		}
		m := NewMock(r.Address, options...)
		m.SetTimeout(opts.Timeout)
		return m, nil
	}
}
