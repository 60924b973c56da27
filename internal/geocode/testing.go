package geocode

// SetTestURL overrides the API URL on a client for testing.
// This should only be used in tests.
func SetTestURL(c *Client, baseURL string) {
	if baseURL != "" {
		c.baseURL = baseURL
	}
}
