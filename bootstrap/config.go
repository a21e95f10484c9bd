package bootstrap

import "github.com/kbukum/tsengine/config"

// Config is what App needs from an application config. Structs embedding
// config.ServiceConfig get GetServiceConfig for free and usually override
// the other two, calling through to the embedded versions first.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
