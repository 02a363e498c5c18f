// Package domain contains the core entities of the card generation
// pipeline: generation requests, model profiles, cards, and run
// statistics. Domain objects are plain values with their own validation
// logic and no dependencies on transport or storage concerns.
package domain
