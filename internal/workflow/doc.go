// Package workflow plans and executes multi-step business requests.
//
// A run has three stages. The Planner asks the completion service for a
// JSON plan of steps. The Executor dispatches the steps strictly in order:
// "completion" steps go back to the completion service, every other step
// is resolved through the capability manifest and invoked through a
// connector. Each step writes named bindings that later steps reference
// with {{key}} placeholders. Finally the Presenter turns the bindings into
// a report using a small tag vocabulary.
//
// Dependencies between steps exist only as placeholders inside free-form
// arguments. They are not declared, so steps cannot be scheduled
// concurrently without changing the plan format.
package workflow
