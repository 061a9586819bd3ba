// Package audio plays generated speech on the default output device using
// oto/v3. Builds with the nocgo tag get a player that reports no device.
package audio
