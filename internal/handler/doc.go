// Package handler implements the HTTP surface of SISMED on echo.
//
// # Routes
//
// POST /api/invoke/:command runs any facade command with the request body
// as its argument object and answers {"result": ...}.
//
// The REST routes under /api cover patients, medicines, posologies,
// prescriptions and their line items, PDF export, backup, restore and the
// catalog:
// - GET for retrieval
// - POST for creation
// - PUT for updates
// - DELETE for removal
//
// Creates answer 201 with {"id": n}; updates and deletes answer 204.
//
// # Errors
//
// Failures are returned as {"error": message}. The status follows the
// error kind: invalid input and cancelled selections 400, not found 404,
// constraint violations 409, everything else 500.
//
// # Server-Sent Events
//
// The /events endpoint streams store changes to connected clients.
package handler
