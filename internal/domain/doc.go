// Package domain holds the value types exchanged between the aggregation
// core and its adapters: coordinates and place identities, unit preferences
// and their upstream tokens, forecast blocks, hazard alerts, and the
// assembled weather report. Types here carry no I/O; adapters translate
// provider payloads into them and the service layer composes them.
package domain
