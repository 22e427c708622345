package pkg

import (
	"github.com/rs/zerolog/log"

	"rookery/pkg/io"
	"rookery/pkg/vision"
)

func printDataErrors(errors []io.DataError) {
	for _, err := range errors {
		log.Error().Msgf("Error parsing data at line %d: %s", err.Line, err.Error)
	}
}

func printImageErrors(errors []vision.DataError) {
	for _, err := range errors {
		log.Error().Msgf("Error loading image %s: %s", err.Path, err.Error)
	}
}
