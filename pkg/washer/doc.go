// Package washer implements the dishwasher wash cycle orchestrator.
//
// A DishWasher coordinates four devices, each behind its own interface:
//
//   - Door: closed sensor and lock
//   - DirtFilter: capacity reading, consulted only when tablets are used
//   - WaterPump: pour and drain
//   - Engine: runs the washing program
//
// Start executes a fixed sequence and stops at the first failure:
//
//  1. Door closed?          no  -> door_open
//  2. Filter capacity > 50? yes -> error_filter (only with tablets)
//  3. Lock door
//  4. Pour water            err -> error_pump
//  5. Run program           err -> error_program
//  6. Drain
//  7. success, RunMinutes = program duration
//
// No call that follows a failing step is ever issued, so the motor never
// runs on an unfilled tub and the pump never drains after a failed run.
// Start never returns an error; every outcome is a Status.
package washer
