package service_interface

import (
	"fmt"
	"net"
)

type Config struct {
	HTTPPort   uint32
	JWTSecret  string
	WithSentry bool
}

func (c Config) Validate() error {
	lis, err := net.Listen("tcp", c.address())
	if err != nil {
		return fmt.Errorf("invalid http port: %s", err)
	}
	// nolint:all
	lis.Close()

	if len(c.JWTSecret) <= 0 {
		return fmt.Errorf("missing jwt secret")
	}
	return nil
}

func (c Config) address() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
