// Package config loads appliance files for the dishwasher controller.
//
// # Overview
//
// An appliance file describes how the controller is observed (telemetry),
// where cycle history is kept (store), how the simulated devices behave
// (devices), and optionally one wash request to run (request).
//
// # Formats
//
// The loader picks a decoder from the file extension:
//
//   - .yaml, .yml: decoded with gopkg.in/yaml.v3, unknown fields rejected
//   - .cue: compiled with CUE and unified with the built-in #File schema
//   - .json: extracted through CUE's JSON encoding, then treated like .cue
//
// After decoding, defaults from telemetry.DefaultConfig are applied, enum
// casing is normalized, and the result is checked against the #File schema
// and the validate struct tags.
//
// # Example
//
//	request:
//	  fill_level: half
//	  program: eco
//	  tablets_used: true
//	devices:
//	  filter:
//	    capacity: 12.5
//	store:
//	  path: dishwasher.db
//
// # Usage
//
//	file, err := config.NewLoader().LoadFile("appliance.yaml")
//	if err != nil {
//	    var verrs config.ValidationErrors
//	    if errors.As(err, &verrs) {
//	        for _, e := range verrs {
//	            fmt.Println(e)
//	        }
//	    }
//	    return err
//	}
//	cfg, err := file.Request.ProgramConfiguration()
package config
