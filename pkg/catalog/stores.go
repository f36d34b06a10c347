package catalog

// DefaultCatalog returns the curated retailer list. Selector sets are
// maintained by hand against each store's current markup.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			Name:                 "amazon",
			BaseURL:              "https://www.amazon.com",
			SearchURLTemplate:    "https://www.amazon.com/s?k=%s",
			ProductLinkSelector:  "a.a-link-normal.s-no-outline, div[data-component-type='s-search-result'] h2 a",
			ProductImageSelector: "#landingImage, #imgTagWrapperId img",
			NoResultsSelector:    "div.s-no-outline span:contains('No results'), .s-no-results-result",
			ProductFoundSelector: "#productTitle",
			ImageURLFilter:       "media-amazon.com",
			MinImageWidth:        500,
			MinImageHeight:       500,
			Active:               true,
		},
		{
			Name:                 "walmart",
			BaseURL:              "https://www.walmart.com",
			SearchURLTemplate:    "https://www.walmart.com/search?q=%s",
			ProductLinkSelector:  "a[link-identifier='linkTest'], div[data-item-id] a[href*='/ip/']",
			ProductImageSelector: "div[data-testid='media-thumbnail'] img, img[data-testid='hero-image']",
			NoResultsSelector:    "span[data-automation-id='no-results-message']",
			ProductFoundSelector: "h1[itemprop='name']",
			ImageURLFilter:       "walmartimages.com",
			MinImageWidth:        400,
			MinImageHeight:       400,
			Active:               true,
		},
		{
			Name:                 "target",
			BaseURL:              "https://www.target.com",
			SearchURLTemplate:    "https://www.target.com/s?searchTerm=%s",
			ProductLinkSelector:  "a[data-test='product-title']",
			ProductImageSelector: "div[data-test='image-gallery-item-0'] img, picture img",
			NoResultsSelector:    "div[data-test='noSearchResults']",
			ProductFoundSelector: "h1[data-test='product-title']",
			ImageURLFilter:       "target.scene7.com",
			MinImageWidth:        400,
			MinImageHeight:       400,
			Active:               true,
		},
		{
			Name:                 "homedepot",
			BaseURL:              "https://www.homedepot.com",
			SearchURLTemplate:    "https://www.homedepot.com/s/%s",
			ProductLinkSelector:  "div[data-testid='product-pod'] a[href*='/p/']",
			ProductImageSelector: "div.mediagallery__mainimage img, img[data-testid='product-image']",
			NoResultsSelector:    "div[data-testid='no-results']",
			ProductFoundSelector: "h1.product-details__title",
			ImageURLFilter:       "thdstatic.com",
			MinImageWidth:        400,
			MinImageHeight:       400,
			Active:               true,
		},
		{
			Name:                 "lowes",
			BaseURL:              "https://www.lowes.com",
			SearchURLTemplate:    "https://www.lowes.com/search?searchTerm=%s",
			ProductLinkSelector:  "div[data-selector='prd-card'] a[href*='/pd/']",
			ProductImageSelector: "div.gallery-image-container img, img#mainImage",
			NoResultsSelector:    "div.no-results-container",
			ProductFoundSelector: "h1.product-brand-description",
			ImageURLFilter:       "lowes.com",
			MinImageWidth:        400,
			MinImageHeight:       400,
			Active:               true,
		},
		{
			Name:                 "wayfair",
			BaseURL:              "https://www.wayfair.com",
			SearchURLTemplate:    "https://www.wayfair.com/keyword.php?keyword=%s",
			ProductLinkSelector:  "a[data-enzyme-id='browse-product-card']",
			ProductImageSelector: "div[data-enzyme-id='carousel'] img, img.ImageComponent-image",
			NoResultsSelector:    "div[data-enzyme-id='NoResultsHeader']",
			ProductFoundSelector: "h1[data-enzyme-id='ProductTitle']",
			ImageURLFilter:       "wfcdn.com",
			MinImageWidth:        400,
			MinImageHeight:       400,
			Active:               true,
		},
		{
			Name:                 "bestbuy",
			BaseURL:              "https://www.bestbuy.com",
			SearchURLTemplate:    "https://www.bestbuy.com/site/searchpage.jsp?st=%s",
			ProductLinkSelector:  "h4.sku-title a, li.sku-item a.image-link",
			ProductImageSelector: "img.primary-image, div.primary-image-container img",
			NoResultsSelector:    "div.no-results-message, .search-zero-state",
			ProductFoundSelector: "div.sku-title h1",
			ImageURLFilter:       "bbystatic.com",
			MinImageWidth:        400,
			MinImageHeight:       400,
			Active:               true,
		},
		{
			Name:                 "ebay",
			BaseURL:              "https://www.ebay.com",
			SearchURLTemplate:    "https://www.ebay.com/sch/i.html?_nkw=%s",
			ProductLinkSelector:  "li.s-item a.s-item__link",
			ProductImageSelector: "div.ux-image-carousel-item img, img#icImg",
			NoResultsSelector:    "div.srp-save-null-search__heading",
			ProductFoundSelector: "h1.x-item-title__mainTitle",
			ImageURLFilter:       "ebayimg.com",
			MinImageWidth:        300,
			MinImageHeight:       300,
			// Listing photos are frequently user shots rather than studio
			// images, so eBay stays off by default.
			Active: false,
		},
	}
}
