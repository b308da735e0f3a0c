package app

import (
	"github.com/vk/udo/internal/registry"
	"github.com/vk/udo/modules/caption"
	"github.com/vk/udo/modules/flip"
)

// coreModules is the definitive list of all modules that are compiled into
// the udo binary.
var coreModules = []registry.Module{
	&flip.Module{},
	&caption.Module{},
}
