package stream

// cursor tracks pagination state for one plan's stream. It is owned and
// mutated by exactly one Reader. The token only moves after the page it
// fetched has been fully buffered, so a mid-page failure re-requests the
// same page instead of skipping records.
type cursor struct {
	token []byte
	done  bool
}

// next returns the token to send with the upcoming fetch. nil requests the
// first page.
func (c *cursor) next() []byte {
	return c.token
}

// advance records the continuation token of a fetched page. An empty token
// marks the stream as exhausted.
func (c *cursor) advance(nextToken []byte) {
	if len(nextToken) == 0 {
		c.token = nil
		c.done = true
		return
	}
	c.token = append([]byte(nil), nextToken...)
}
