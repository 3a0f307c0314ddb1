package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/grengine/config"
	"github.com/sarchlab/grengine/falcon"
	"github.com/sarchlab/grengine/gpusim"
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/instrumentation/hooking"
)

const platformName = "Device"

// options are the flags every command shares.
type options struct {
	configPath string
	envPath    string
	logLevel   string
}

func (o *options) config() (*config.Config, error) {
	c := config.Default()

	if o.configPath != "" {
		var err error
		c, err = config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
	}

	if err := c.LoadEnv(o.envPath); err != nil {
		return nil, err
	}

	return c, nil
}

func (o *options) logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetLevel(level)

	return l, nil
}

func (o *options) platform() (*gpusim.Platform, error) {
	c, err := o.config()
	if err != nil {
		return nil, err
	}

	l, err := o.logger()
	if err != nil {
		return nil, err
	}

	b, err := c.PlatformBuilder(l)
	if err != nil {
		return nil, err
	}

	return b.Build(platformName), nil
}

var classNames = map[string]uint32{
	"kepler-c": hw.KeplerC,
	"compute":  hw.KeplerComputeA,
	"2d":       hw.FermiTwodA,
	"dma":      hw.KeplerDMACopyA,
}

// parseClass accepts a class name or a class number.
func parseClass(s string) (uint32, error) {
	if c, ok := classNames[strings.ToLower(s)]; ok {
		return c, nil
	}

	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown object class %q", s)
	}

	return uint32(v), nil
}

// commandTag counts FECS methods by name.
func commandTag(ctx hooking.HookCtx) string {
	if m, ok := ctx.Item.(falcon.Method); ok {
		return m.Name
	}

	return ""
}
