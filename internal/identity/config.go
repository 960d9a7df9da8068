package identity

import (
	"maps"
	"slices"
)

// Config lists the attributes and inputs the Liberal strategy ignores.
// It is immutable after construction; accessors return copies.
type Config struct {
	calcJobIgnoredInputs     []string
	calcJobIgnoredAttributes []string
	nodeIgnoredAttributes    map[string][]string
}

// ConfigOption customizes a Config under construction.
type ConfigOption func(*Config)

// IgnoreCalcJobInputs excludes input links with these labels from calcjob
// identity.
func IgnoreCalcJobInputs(labels ...string) ConfigOption {
	return func(c *Config) {
		c.calcJobIgnoredInputs = append(c.calcJobIgnoredInputs, labels...)
	}
}

// IgnoreCalcJobAttributes excludes these attributes from calcjob identity.
func IgnoreCalcJobAttributes(keys ...string) ConfigOption {
	return func(c *Config) {
		c.calcJobIgnoredAttributes = append(c.calcJobIgnoredAttributes, keys...)
	}
}

// IgnoreNodeAttributes excludes keys from the identity of builtin data
// nodes whose TypeName is typeName.
func IgnoreNodeAttributes(typeName string, keys ...string) ConfigOption {
	return func(c *Config) {
		if c.nodeIgnoredAttributes == nil {
			c.nodeIgnoredAttributes = make(map[string][]string)
		}
		c.nodeIgnoredAttributes[typeName] = append(c.nodeIgnoredAttributes[typeName], keys...)
	}
}

// NewConfig builds a Config. Lists are sorted and deduplicated.
func NewConfig(opts ...ConfigOption) Config {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}
	c.calcJobIgnoredInputs = normalize(c.calcJobIgnoredInputs)
	c.calcJobIgnoredAttributes = normalize(c.calcJobIgnoredAttributes)
	for typeName, keys := range c.nodeIgnoredAttributes {
		c.nodeIgnoredAttributes[typeName] = normalize(keys)
	}
	return c
}

// CalcJobIgnoredInputs returns the ignored calcjob input labels.
func (c Config) CalcJobIgnoredInputs() []string {
	return slices.Clone(c.calcJobIgnoredInputs)
}

// CalcJobIgnoredAttributes returns the ignored calcjob attributes.
func (c Config) CalcJobIgnoredAttributes() []string {
	return slices.Clone(c.calcJobIgnoredAttributes)
}

// NodeIgnoredAttributes returns the ignored attributes per data type name.
func (c Config) NodeIgnoredAttributes() map[string][]string {
	out := make(map[string][]string, len(c.nodeIgnoredAttributes))
	for typeName, keys := range c.nodeIgnoredAttributes {
		out[typeName] = slices.Clone(keys)
	}
	return out
}

func (c Config) ignoresInput(label string) bool {
	_, found := slices.BinarySearch(c.calcJobIgnoredInputs, label)
	return found
}

func (c Config) ignoresCalcJobAttribute(key string) bool {
	_, found := slices.BinarySearch(c.calcJobIgnoredAttributes, key)
	return found
}

func (c Config) ignoresNodeAttribute(typeName, key string) bool {
	_, found := slices.BinarySearch(c.nodeIgnoredAttributes[typeName], key)
	return found
}

func normalize(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// Equal reports whether two configs ignore exactly the same things.
func (c Config) Equal(other Config) bool {
	return slices.Equal(c.calcJobIgnoredInputs, other.calcJobIgnoredInputs) &&
		slices.Equal(c.calcJobIgnoredAttributes, other.calcJobIgnoredAttributes) &&
		maps.EqualFunc(c.nodeIgnoredAttributes, other.nodeIgnoredAttributes, slices.Equal[[]string])
}
