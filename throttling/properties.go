/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"fmt"

	"github.com/magiconair/properties"
)

// LoadPropertiesFile reads a .properties file into a flat key/value map.
// Keys keep their case.
func LoadPropertiesFile(path string) (map[string]string, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, fmt.Errorf("load throttling properties from %s: %w", path, err)
	}
	return p.Map(), nil
}

// ParseProperties parses the .properties text into a flat key/value map.
func ParseProperties(text string) (map[string]string, error) {
	p, err := properties.LoadString(text)
	if err != nil {
		return nil, fmt.Errorf("parse throttling properties: %w", err)
	}
	return p.Map(), nil
}
