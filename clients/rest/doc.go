// Package rest provides a set of utilities for making RESTful API calls.
//
// This package includes functions for sending HTTP requests, handling responses,
// and managing authentication and authorization headers.
//
// Example usage:
//
//	// Create a new REST client
//	client := rest.NewClient()
//
//	// Build a GET request with a header
//	req := client.NewRequest("https://api.example.com/users", http.MethodGet)
//	req.AddHeader("Authorization", "Bearer YOUR_AUTH_TOKEN")
//
//	// Send the request
//	response, err := client.Execute(req)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Close the response body
//	defer response.Body.Close()
//
// For more information and examples, please refer to the package documentation.
package rest
