// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package integrations

import (
	"context"
	"fmt"
	"net/http"
)

// EventRequest describes a Zoho Calendar event to create. Start and End are
// RFC 3339 timestamps.
type EventRequest struct {
	CalendarID  string
	Title       string
	StartISO    string
	EndISO      string
	Location    string
	Description string
}

type eventTime struct {
	DateTime string `json:"dateTime"`
}

type eventPayload struct {
	Title       string    `json:"title"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
}

// CreateCalendarEvent creates an event on the given calendar.
func (c *Client) CreateCalendarEvent(ctx context.Context, accessToken string, req EventRequest) (map[string]any, error) {
	payload := eventPayload{
		Title:       req.Title,
		Start:       eventTime{DateTime: req.StartISO},
		End:         eventTime{DateTime: req.EndISO},
		Location:    req.Location,
		Description: req.Description,
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.cfg.CalendarBaseURL, req.CalendarID)
	var resp map[string]any
	err := c.doJSON(ctx, http.MethodPost, endpoint, zohoHeaders(accessToken), nil, payload, &resp)
	if err != nil {
		return nil, fmt.Errorf("calendar: creating event: %w", err)
	}
	return resp, nil
}
