// Command render loads a page in headless Chromium, waits until it is done
// rendering and saves the resulting HTML.
//
//	render <url> <destinationPath>
//	render --poll <timeoutSeconds> <url> <destinationPath>
//	render serve
package main

import "os"

func main() {
	os.Exit(Execute())
}
