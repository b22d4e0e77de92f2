package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           diffusiond API
// @version         1.0
// @description     OpenAI-Images-API-compatible HTTP server for a single local diffusion model.
//
// @contact.name   diffusiond maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
