package uplink

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/rfgate/helpers"
	"github.com/temoto/rfgate/log2"
)

func TestFormatValue(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input  float32
		expect string
	}{
		{23.5, "23.500000"},
		{410.2, "410.200012"},
		{0, "0.000000"},
		{-4.25, "-4.250000"},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, FormatValue(c.input))
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		config    Config
		mock      *helpers.MockHTTP
		expectURL string
		expectErr string
	}
	cases := []Case{
		{"ok",
			Config{BaseURL: "http://localhost", Username: "admin", Password: "test"},
			&helpers.MockHTTP{},
			"http://localhost/Api/EasyIoT/Control/Module/Virtual/N5S0/ControlLevel/23.500000",
			""},
		{"base-path-post",
			Config{BaseURL: "https://iot.lan/prefix/", Method: "post"},
			&helpers.MockHTTP{},
			"https://iot.lan/prefix/Api/EasyIoT/Control/Module/Virtual/N5S0/ControlLevel/23.500000",
			""},
		{"status-500",
			Config{BaseURL: "http://localhost"},
			&helpers.MockHTTP{Header: helpers.MockHTTPStatus("500 Internal Server Error")},
			"http://localhost/Api/EasyIoT/Control/Module/Virtual/N5S0/ControlLevel/23.500000",
			"uplink id=N5S0 status=500"},
		{"network",
			Config{BaseURL: "http://localhost"},
			&helpers.MockHTTP{Err: fmt.Errorf("connection refused")},
			"http://localhost/Api/EasyIoT/Control/Module/Virtual/N5S0/ControlLevel/23.500000",
			"connection refused"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			u, err := NewEasyIoT(c.config, c.mock, log2.NewTest(t, log2.LDebug))
			require.NoError(t, err)
			defer u.Close()
			err = u.Publish(context.Background(), "N5S0", 23.5)
			if c.expectErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
				_, ok := err.(*Error)
				assert.True(t, ok)
			}
			reqs := c.mock.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, c.expectURL, reqs[0].URL.String())
			if c.config.Method == "" {
				assert.Equal(t, http.MethodGet, reqs[0].Method)
			} else {
				assert.Equal(t, http.MethodPost, reqs[0].Method)
			}
			user, pass, ok := reqs[0].BasicAuth()
			assert.Equal(t, c.config.Username != "", ok)
			assert.Equal(t, c.config.Username, user)
			assert.Equal(t, c.config.Password, pass)
		})
	}
}

func TestNewEasyIoTInvalid(t *testing.T) {
	t.Parallel()
	for _, base := range []string{"", "ftp://x", "://bad"} {
		_, err := NewEasyIoT(Config{BaseURL: base}, nil, nil)
		assert.Error(t, err, base)
	}
}
