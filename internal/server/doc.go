// Package server provides a debug progress server for taskwatch.
//
// The server stands in for the task backend a progress client talks to. It
// keeps tasks in memory, plays scripted scenarios against them and answers
// progress requests over a websocket in both the legacy raw form and the
// tagged JSON form.
//
// # Endpoints
//
// All routes live under /{deployPath}/{route}:
//
//   - GET  /tasks                 - JSON list of tasks
//   - POST /tasks                 - create a task running the loaded scenario
//   - GET  /tasks/{id}            - JSON view of one task
//   - POST /tasks/{id}/restart    - clear progress and replay the scenario
//   - GET  /tasks/{id}/progress   - websocket progress stream
//
// # Progress stream
//
// A text frame "progress" is answered with the task's progress lines, each
// trimmed and followed by <br/>. Once the task is stopped or succeeded the
// server closes with 1000 "process stopped". A frame {"command":"progress"}
// is answered with {"type":"progress","data":...} while the task runs and
// {"type":"complete","data":...} once it finished. Unknown tasks are
// closed with code 4404.
package server
