package config

import (
	"github.com/BurntSushi/toml"

	"github.com/teranos/libstat/errors"
)

// CheckUnknownKeys decodes the TOML file at path and returns every key that
// does not map onto Config. Keys under an options table belong to providers
// and are not reported. viper silently drops such keys, so a typo like
// "backed = mmap" would otherwise fall back to the default backend.
func CheckUnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	undecoded := md.Undecoded()
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		if providerOption(k) {
			continue
		}
		keys = append(keys, k.String())
	}
	return keys, nil
}

// optionRoots are the free-form tables owned by providers
var optionRoots = []toml.Key{
	{"classifier", "options"},
	{"classifier", "tokenizer", "options"},
	{"classifier", "statfile", "options"},
}

// providerOption reports whether k lies inside one of optionRoots
func providerOption(k toml.Key) bool {
	for _, root := range optionRoots {
		if len(k) < len(root) {
			continue
		}
		match := true
		for i := range root {
			if k[i] != root[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
