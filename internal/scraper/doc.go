// Package scraper fetches event listing pages.
//
// A Fetcher retrieves a page with a plain HTTP GET, identified by a fixed
// User-Agent and bounded by a timeout, and parses it into a goquery document.
// Pages that only produce their listings after running JavaScript are loaded
// through a Renderer instead; ChromeRenderer drives a headless Chromium via
// chromedp and waits for the network to go idle before reading the DOM.
//
// The RenderMode of a fetch decides which path runs: never renders, falls
// back to rendering when the plain fetch fails, or always renders. Every
// failure is reported as a *FetchError.
package scraper
