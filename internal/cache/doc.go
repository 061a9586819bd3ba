// Package cache keeps generated speech so an identical request can be
// published again without calling a backend. It has an in-memory LRU tier
// (L1) and a zstd-compressed disk tier (L2) that survives restarts.
package cache
