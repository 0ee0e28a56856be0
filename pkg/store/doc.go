// Package store persists ZENITH history, campaigns, chat memory and
// generated assets.
//
// Local history lives in an embedded Badger database with msgpack-encoded
// lists. Campaigns and agent chat memory go to PostgreSQL when it is
// configured, with the local store as a fallback. Generated images and
// videos are written to a filesystem directory or an S3 bucket.
package store
