package env_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/utils/env"
)

func TestParseSpecs(t *testing.T) {
	t.Setenv("TASKHIVE_TEST_PASSTHROUGH", "from-host")

	tests := map[string]struct {
		specs  []string
		exp    map[string]string
		expErr bool
	}{
		"Literal key value pairs.": {
			specs: []string{"FOO=bar", "EMPTY="},
			exp:   map[string]string{"FOO": "bar", "EMPTY": ""},
		},
		"A bare key passes through the host value.": {
			specs: []string{"TASKHIVE_TEST_PASSTHROUGH"},
			exp:   map[string]string{"TASKHIVE_TEST_PASSTHROUGH": "from-host"},
		},
		"A bare key missing from the host fails.": {
			specs:  []string{"TASKHIVE_TEST_DEFINITELY_UNSET"},
			expErr: true,
		},
		"An invalid key fails.": {
			specs:  []string{"9BAD=1"},
			expErr: true,
		},
		"An empty spec fails.": {
			specs:  []string{""},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := env.ParseSpecs(test.specs)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.exp, got)
		})
	}
}

func TestFormat(t *testing.T) {
	got := env.Format(map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, []string{"A=1", "B=2"}, got)
}
