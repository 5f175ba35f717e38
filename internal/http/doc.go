// Package http exposes the appointment desk over JSON/HTTP.
//
// Every route except GET /healthz and the local image files under /uploads/ requires an
// HS256 bearer token whose subject is the user id. Administrators carry role=admin or
// are listed in the configured admin user ids.
//
//   - POST /appointments: requests an appointment. Body is JSON or multipart/form-data
//     with the same field names plus "images" file parts. Responds 201 with
//     {"appointment", "warnings"}.
//   - GET /appointments?month=YYYY-MM&status=&date=&mine=true: newest first. Records of
//     other requesters carry only schedule fields and "restricted": true.
//   - GET /appointments/{id}, DELETE /appointments/{id}.
//   - PUT|PATCH /appointments/{id}/status: {"status","arrival_time","finished_time"}.
//     Administrators only. Overlaps with an approved window respond 409 TIME_CONFLICT
//     naming the conflicting window.
//   - GET|POST /availability/rules, PUT|PATCH|DELETE /availability/rules/{id}.
//   - GET /schedule/{date}: resolved availability, bookable slots and booked windows.
//   - GET /images/{id}: redirects to the stored image.
//   - GET /calendar.ics?month=: approved appointments as an iCalendar feed. The token may
//     be passed as access_token for calendar clients.
//   - GET /exports/appointments.xlsx?month=YYYY-MM: administrators only.
//
// Errors use {"error_code","message","errors"} with Japanese messages.
package http
