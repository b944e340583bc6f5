// Package profile stores named broker connection settings.
//
// A Profile holds everything needed to open a session except the password,
// which is never persisted and must be supplied on each connect. Profiles
// live in the SQLite store created by the migrations package.
package profile
